// Package all registers every backend with the backend registry.
//
//	import _ "github.com/wippyai/wasm-audio/backend/all"
package all

import (
	_ "github.com/wippyai/wasm-audio/backend/aot"
	_ "github.com/wippyai/wasm-audio/backend/interp"
	_ "github.com/wippyai/wasm-audio/backend/transpiled"
)
