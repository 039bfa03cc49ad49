package lens

import (
	"bytes"
	"fmt"
	"sort"
)

// editKind orders edits that land on the same offset: declaration inserts
// resolve ahead of the call-site replacement.
type editKind int

const (
	editInsert editKind = iota
	editReplace
)

type edit struct {
	kind       editKind
	start, end uint32
	text       string
	seq        int
}

// EditBuffer collects text edits against one source buffer, all expressed in
// the original file's byte offsets, and resolves them into a single
// consistent final text. Edits may be recorded in any order; inserts at the
// same anchor keep their recording order. Overlapping replacements are a
// diagnostic error surfaced on flush.
type EditBuffer struct {
	src   []byte
	edits []edit
	err   error
}

// NewEditBuffer wraps source bytes for editing. The source is not copied;
// callers must not mutate it while the buffer is live.
func NewEditBuffer(src []byte) *EditBuffer {
	return &EditBuffer{src: src}
}

// Replace schedules replacement of the byte range [start, end) with text.
func (b *EditBuffer) Replace(start, end uint32, text string) {
	if start > end || end > uint32(len(b.src)) {
		b.fail(fmt.Errorf("replace range [%d, %d) outside buffer of %d bytes", start, end, len(b.src)))
		return
	}
	b.edits = append(b.edits, edit{kind: editReplace, start: start, end: end, text: text, seq: len(b.edits)})
}

// InsertBefore schedules insertion of text immediately before offset.
func (b *EditBuffer) InsertBefore(offset uint32, text string) {
	if offset > uint32(len(b.src)) {
		b.fail(fmt.Errorf("insert offset %d outside buffer of %d bytes", offset, len(b.src)))
		return
	}
	b.edits = append(b.edits, edit{kind: editInsert, start: offset, end: offset, text: text, seq: len(b.edits)})
}

func (b *EditBuffer) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns the first diagnostic recorded while scheduling edits.
func (b *EditBuffer) Err() error {
	return b.err
}

// Bytes resolves all scheduled edits into the final text. The relative
// recording order of non-overlapping edits does not affect the result.
func (b *EditBuffer) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	ordered := make([]edit, len(b.edits))
	copy(ordered, b.edits)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].start != ordered[j].start {
			return ordered[i].start < ordered[j].start
		}
		if ordered[i].kind != ordered[j].kind {
			return ordered[i].kind < ordered[j].kind
		}
		return ordered[i].seq < ordered[j].seq
	})

	var out bytes.Buffer
	out.Grow(len(b.src) + 64)
	var pos uint32
	for _, e := range ordered {
		if e.start < pos {
			return nil, fmt.Errorf("overlapping edits at byte %d", e.start)
		}
		out.Write(b.src[pos:e.start])
		out.WriteString(e.text)
		pos = e.end
	}
	out.Write(b.src[pos:])
	return out.Bytes(), nil
}
