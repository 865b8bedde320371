package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-audio/wasm/internal/binary"
)

// Inspection errors. Callers match them with errors.Is.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
	ErrSectionOrder   = errors.New("section out of order")
	ErrFuncCount      = errors.New("function and code section counts differ")
	ErrExportNotFound = errors.New("export not found")
	ErrNotFunc        = errors.New("export is not a function")
	ErrTypeIndex      = errors.New("type index out of range")
)

// Info is the structural summary of a module image: enough to decide
// whether an export exists and what its signature is, without compiling.
type Info struct {
	Types        []FuncType
	ImportFuncs  []uint32 // type index per imported function
	Funcs        []uint32 // type index per defined function
	Memories     []Limits
	Exports      []Export
	Imports      int
	CodeBodies   int
	CustomBytes  int
	SectionCount int
}

// Inspect decodes the header and section layout of a module image. It parses
// the type, import, function, memory, export and code-count sections and
// skips everything else. Section order is enforced.
func Inspect(data []byte) (*Info, error) {
	r := binary.NewReader(data, 0)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	info := &Info{}
	var last int

	for r.Len() > 0 {
		id, _ := r.ReadByte()

		if id != SectionCustom {
			order := sectionOrder(id)
			if order == 0 {
				return nil, r.WrapError("section header", fmt.Errorf("unknown section id %d", id))
			}
			if order <= last {
				return nil, fmt.Errorf("section %d: %w", id, ErrSectionOrder)
			}
			last = order
		}

		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		start := r.Position()
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}
		info.SectionCount++

		sr := binary.NewReader(payload, start)
		switch id {
		case SectionCustom:
			info.CustomBytes += len(payload)
		case SectionType:
			err = parseTypes(sr, info)
		case SectionImport:
			err = parseImports(sr, info)
		case SectionFunction:
			info.Funcs, err = readU32Vec(sr)
		case SectionMemory:
			err = parseMemories(sr, info)
		case SectionExport:
			err = parseExports(sr, info)
		case SectionCode:
			var n uint32
			n, err = readCount(sr, "code")
			info.CodeBodies = int(n)
		}
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
	}

	if info.CodeBodies != len(info.Funcs) {
		return nil, fmt.Errorf("%w: %d functions, %d bodies", ErrFuncCount, len(info.Funcs), info.CodeBodies)
	}
	for _, t := range info.Funcs {
		if int(t) >= len(info.Types) {
			return nil, fmt.Errorf("%w: %d", ErrTypeIndex, t)
		}
	}
	return info, nil
}

// FuncType returns the signature of a function by index, counting imports first.
func (i *Info) FuncType(idx uint32) (FuncType, bool) {
	var t uint32
	switch {
	case int(idx) < len(i.ImportFuncs):
		t = i.ImportFuncs[idx]
	case int(idx)-len(i.ImportFuncs) < len(i.Funcs):
		t = i.Funcs[int(idx)-len(i.ImportFuncs)]
	default:
		return FuncType{}, false
	}
	if int(t) >= len(i.Types) {
		return FuncType{}, false
	}
	return i.Types[t], true
}

// ExportedFunc looks up a function export by exact name.
func (i *Info) ExportedFunc(name string) (FuncType, error) {
	for _, e := range i.Exports {
		if e.Name != name {
			continue
		}
		if e.Kind != KindFunc {
			return FuncType{}, fmt.Errorf("%q: %w", name, ErrNotFunc)
		}
		ft, ok := i.FuncType(e.Index)
		if !ok {
			return FuncType{}, fmt.Errorf("%q: %w", name, ErrTypeIndex)
		}
		return ft, nil
	}
	return FuncType{}, fmt.Errorf("%q: %w", name, ErrExportNotFound)
}

func parseTypes(r *binary.Reader, info *Info) error {
	n, err := readCount(r, "type")
	if err != nil {
		return err
	}
	info.Types = make([]FuncType, 0, n)
	for k := uint32(0); k < n; k++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return r.WrapError("type", fmt.Errorf("unsupported type form 0x%02x", form))
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		info.Types = append(info.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func parseImports(r *binary.Reader, info *Info) error {
	n, err := readCount(r, "import")
	if err != nil {
		return err
	}
	info.Imports = int(n)
	for k := uint32(0); k < n; k++ {
		if _, err := r.ReadName(); err != nil {
			return err
		}
		if _, err := r.ReadName(); err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch kind {
		case KindFunc:
			t, err := r.ReadU32()
			if err != nil {
				return err
			}
			info.ImportFuncs = append(info.ImportFuncs, t)
		case KindTable:
			if _, err := r.ReadByte(); err != nil {
				return err
			}
			if _, err := readLimits(r); err != nil {
				return err
			}
		case KindMemory:
			if _, err := readLimits(r); err != nil {
				return err
			}
		case KindGlobal:
			if err := r.Skip(2); err != nil {
				return err
			}
		case KindTag:
			if _, err := r.ReadByte(); err != nil {
				return err
			}
			if _, err := r.ReadU32(); err != nil {
				return err
			}
		default:
			return r.WrapError("import", fmt.Errorf("unknown import kind %d", kind))
		}
	}
	return nil
}

func parseMemories(r *binary.Reader, info *Info) error {
	n, err := readCount(r, "memory")
	if err != nil {
		return err
	}
	for k := uint32(0); k < n; k++ {
		l, err := readLimits(r)
		if err != nil {
			return err
		}
		info.Memories = append(info.Memories, l)
	}
	return nil
}

func parseExports(r *binary.Reader, info *Info) error {
	n, err := readCount(r, "export")
	if err != nil {
		return err
	}
	info.Exports = make([]Export, 0, n)
	for k := uint32(0); k < n; k++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		info.Exports = append(info.Exports, Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	lo, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: lo}
	switch flag {
	case LimitsNoMax:
	case LimitsHasMax, 0x03:
		if l.Max, err = r.ReadU32(); err != nil {
			return Limits{}, err
		}
		l.HasMax = true
	default:
		return Limits{}, r.WrapError("limits", fmt.Errorf("unsupported limits flag 0x%02x", flag))
	}
	return l, nil
}

// readCount reads a vector length. Every entry takes at least one byte, so a
// count larger than the unread input is malformed.
func readCount(r *binary.Reader, section string) (uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if int64(n) > int64(r.Len()) {
		return 0, r.WrapError(section, fmt.Errorf("vector length %d exceeds section", n))
	}
	return n, nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := readCount(r, "types")
	if err != nil {
		return nil, err
	}
	out := make([]ValType, n)
	for k := range out {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		out[k] = ValType(b)
	}
	return out, nil
}

func readU32Vec(r *binary.Reader) ([]uint32, error) {
	n, err := readCount(r, "vector")
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for k := range out {
		if out[k], err = r.ReadU32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
