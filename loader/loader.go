// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

// Package loader parses a position-independent ELF image, relocates its
// Global Offset Table against wherever this process actually placed the
// image's writable data, and builds the entry context a fresh thread needs
// to start running it.
//
// There is exactly one executable PHDR (.text + .rodata, contiguous) and one
// writable PHDR (.got + .data + .bss + .noinit, contiguous, in that order).
// Maximum section alignment is 4.
package loader

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
)

var (
	// ErrMissingTextSection means the image has no .text section at all.
	ErrMissingTextSection = errors.New("loader: missing .text section")
	// ErrMissingGotSection means the writable segment has no .got section.
	ErrMissingGotSection = errors.New("loader: missing .got section")
	// ErrMissingDataSection means the writable segment has no .data section.
	ErrMissingDataSection = errors.New("loader: missing .data section")
	// ErrMissingBssSection means the writable segment has no .bss section.
	ErrMissingBssSection = errors.New("loader: missing .bss section")
	// ErrNonContiguousRoData means .rodata does not immediately follow .text.
	ErrNonContiguousRoData = errors.New("loader: .rodata is not contiguous with .text")
	// ErrNonContiguousData means the write-allocate sections are not packed
	// back to back with no gaps.
	ErrNonContiguousData = errors.New("loader: write-allocate sections are not contiguous")
	// ErrUnsupportedSectionAlign means a write-allocate section asks for
	// more than 4-byte alignment.
	ErrUnsupportedSectionAlign = errors.New("loader: section alignment exceeds 4")
	// ErrUnsupportedSection means a write-allocate section exists that this
	// loader doesn't know how to place (only .got/.data/.bss/.noinit).
	ErrUnsupportedSection = errors.New("loader: unsupported write-allocate section")
	// ErrTooManySegments means the image has more than the two PHDRs this
	// loader understands.
	ErrTooManySegments = errors.New("loader: more than two program headers")
	// ErrPICRegisterMismatch means the image's __wut4_pic_register note does
	// not match the kernel's own build-time choice of GOT register. See
	// SPEC_FULL.md's Open Question resolution: encoding the choice in the
	// ELF and validating it here replaces silently trusting a matching
	// build flag.
	ErrPICRegisterMismatch = errors.New("loader: image's PIC register does not match this kernel's build")
	// ErrMissingPICRegisterNote means the image carries no
	// __wut4_pic_register symbol at all.
	ErrMissingPICRegisterNote = errors.New("loader: image has no __wut4_pic_register symbol")
)

// sectionKind identifies one of the four write-allocate sections a writable
// segment may carry.
type sectionKind int

const (
	sectionGOT sectionKind = iota
	sectionData
	sectionBSS
	sectionNoinit
	sectionCount
)

// sectionRef is where one write-allocate section lands relative to the base
// of the allocated data block, and what it should be initialized from.
type sectionRef struct {
	offset   int
	size     int
	contents []byte // nil for .bss and .noinit: zero-fill only
}

// Loadable is a parsed, relocation-ready image: everything the loader figured
// out from the ELF file, before any RAM has been allocated for it.
type Loadable struct {
	entryOffset int    // offset of the entry point within text
	text        []byte // .text followed by .rodata, verbatim
	textFlashBase,
	textFlashSize uint64
	dataFlashBase,
	dataFlashSize uint64
	sections  [sectionCount]*sectionRef
	allocSize int
	picReg    PICRegister
}

// PICRegister is which ARM core register a loaded image expects to find its
// Global Offset Table base address in, matching the `-mpic-register` flag
// the toolchain built it with.
type PICRegister uint8

const (
	R9  PICRegister = 9
	R10 PICRegister = 10
)

// picRegisterNote is the symbol name the toolchain emits to record which
// register -mpic-register was set to, so the loader can validate it against
// the kernel's own build-time choice instead of trusting a matching flag.
const picRegisterNote = "__wut4_pic_register"

// Load parses bytes as an ELF image and returns a Loadable ready to be
// instantiated into a thread with Instantiate.
func Load(image []byte, wantReg PICRegister) (*Loadable, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("loader: parsing ELF: %w", err)
	}

	if len(f.Progs) > 2 {
		return nil, ErrTooManySegments
	}

	picReg, err := readPICRegister(f)
	if err != nil {
		return nil, err
	}
	if picReg != wantReg {
		return nil, ErrPICRegisterMismatch
	}

	text := f.Section(".text")
	if text == nil {
		return nil, ErrMissingTextSection
	}
	textData, err := text.Data()
	if err != nil {
		return nil, fmt.Errorf("loader: reading .text: %w", err)
	}

	textFlashBase := text.Addr
	textFlashSize := text.Size

	if rodata := f.Section(".rodata"); rodata != nil {
		if rodata.Addr != textFlashBase+textFlashSize {
			return nil, ErrNonContiguousRoData
		}
		rodataData, err := rodata.Data()
		if err != nil {
			return nil, fmt.Errorf("loader: reading .rodata: %w", err)
		}
		textData = append(textData, rodataData...)
		textFlashSize += rodata.Size
	}

	entryOffset := int(f.Entry - textFlashBase)
	if entryOffset < 0 || entryOffset >= len(textData) {
		return nil, fmt.Errorf("loader: entry point %#x is outside .text", f.Entry)
	}

	sections, dataFlashBase, allocSize, err := layoutDataSections(f)
	if err != nil {
		return nil, err
	}

	return &Loadable{
		entryOffset:   entryOffset,
		text:          textData,
		textFlashBase: textFlashBase,
		textFlashSize: textFlashSize,
		dataFlashBase: dataFlashBase,
		dataFlashSize: uint64(allocSize),
		sections:      sections,
		allocSize:     allocSize,
		picReg:        picReg,
	}, nil
}

func readPICRegister(f *elf.File) (PICRegister, error) {
	syms, err := f.Symbols()
	if err != nil {
		syms = nil // images built without a symbol table fail below, not here
	}
	for _, s := range syms {
		if s.Name == picRegisterNote {
			switch PICRegister(s.Value) {
			case R9, R10:
				return PICRegister(s.Value), nil
			default:
				return 0, fmt.Errorf("loader: %s holds unsupported value %d", picRegisterNote, s.Value)
			}
		}
	}
	return 0, ErrMissingPICRegisterNote
}

const writeAllocFlags = elf.SHF_ALLOC | elf.SHF_WRITE

func layoutDataSections(f *elf.File) (sections [sectionCount]*sectionRef, base uint64, allocSize int, err error) {
	first := true
	var cursor uint64

	for _, sec := range f.Sections {
		if sec.Flags&writeAllocFlags != writeAllocFlags || sec.Size == 0 {
			continue
		}
		if sec.Addralign > 4 {
			return sections, 0, 0, ErrUnsupportedSectionAlign
		}

		var kind sectionKind
		switch sec.Name {
		case ".got":
			kind = sectionGOT
		case ".data":
			kind = sectionData
		case ".bss":
			kind = sectionBSS
		case ".noinit":
			kind = sectionNoinit
		default:
			return sections, 0, 0, ErrUnsupportedSection
		}

		if first {
			base = sec.Addr
			cursor = sec.Addr
			first = false
		} else if cursor != sec.Addr {
			return sections, 0, 0, ErrNonContiguousData
		}

		var contents []byte
		if kind == sectionGOT || kind == sectionData {
			contents, err = sec.Data()
			if err != nil {
				return sections, 0, 0, fmt.Errorf("loader: reading %s: %w", sec.Name, err)
			}
		}

		sections[kind] = &sectionRef{
			offset:   int(sec.Addr - base),
			size:     int(sec.Size),
			contents: contents,
		}
		cursor += sec.Size
	}

	if sections[sectionGOT] == nil {
		return sections, 0, 0, ErrMissingGotSection
	}
	if sections[sectionData] == nil {
		return sections, 0, 0, ErrMissingDataSection
	}
	if sections[sectionBSS] == nil {
		return sections, 0, 0, ErrMissingBssSection
	}

	return sections, base, int(cursor - base), nil
}

// EntryOffset is the byte offset of the entry point within the text image
// returned by Text.
func (l *Loadable) EntryOffset() int { return l.entryOffset }

// Text is the .text+.rodata bytes, verbatim from the ELF, in load order.
func (l *Loadable) Text() []byte { return l.text }

// AllocSize is how many bytes of RAM the writable segment (.got, .data,
// .bss, .noinit, contiguous) needs.
func (l *Loadable) AllocSize() int { return l.allocSize }

// PICRegister is the GOT-base register this image was built to expect.
func (l *Loadable) PICRegister() PICRegister { return l.picReg }

// Relocate copies .got and .data into ram (which must be exactly AllocSize
// bytes), zero-fills .bss, poison-fills .noinit with fill, and patches every
// 32-bit GOT entry from its flash-relative address to where it now actually
// lives: entries pointing into the text image are shifted by the distance
// between where .text+.rodata now live (textRAMBase) and where the ELF
// declared them (textFlashBase); entries pointing into the writable image
// are shifted by the distance between ram's base address and dataFlashBase.
// A zero entry is left alone.
func (l *Loadable) Relocate(ram []byte, textRAMBase, ramBase uint64, fill byte) error {
	if len(ram) != l.allocSize {
		return fmt.Errorf("loader: RAM block is %d bytes, need %d", len(ram), l.allocSize)
	}

	got := l.sections[sectionGOT]
	for i := 0; i+4 <= got.size; i += 4 {
		entry := leUint32(got.contents[i:])
		var patched uint32
		switch {
		case entry == 0:
			patched = 0
		case uint64(entry) < l.textFlashBase+l.textFlashSize:
			patched = uint32(uint64(entry) + textRAMBase - l.textFlashBase)
		case uint64(entry) < l.dataFlashBase+l.dataFlashSize:
			patched = uint32(uint64(entry) + ramBase - l.dataFlashBase)
		default:
			return fmt.Errorf("loader: GOT entry %#x at offset %d is outside both segments", entry, i)
		}
		putLeUint32(ram[got.offset+i:], patched)
	}

	data := l.sections[sectionData]
	copy(ram[data.offset:data.offset+data.size], data.contents)

	bss := l.sections[sectionBSS]
	for i := 0; i < bss.size; i++ {
		ram[bss.offset+i] = 0
	}

	if noinit := l.sections[sectionNoinit]; noinit != nil {
		for i := 0; i < noinit.size; i++ {
			ram[noinit.offset+i] = fill
		}
	}

	return nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLeUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
