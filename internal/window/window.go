// Package window computes which part of a long list must be materialized
// for a scrolling viewport. It holds no rendering state.
package window

// Window describes a fixed-size-row list seen through a viewport.
// Sizes and offsets are in pixels.
type Window struct {
	ItemCount     int `json:"itemCount"`
	EstimatedSize int `json:"estimatedSize"`
	Overscan      int `json:"overscan"`
	Offset        int `json:"offset"`
	Extent        int `json:"extent"`
	// Active is the keyboard-selected index, -1 when nothing is active.
	Active int `json:"active"`
}

// Item is one materialized row.
type Item struct {
	Index  int `json:"index"`
	Offset int `json:"offset"`
}

// New returns an empty window with no active index.
func New(estimatedSize, overscan, extent int) *Window {
	return &Window{EstimatedSize: estimatedSize, Overscan: overscan, Extent: extent, Active: -1}
}

// TotalSize is the scrollable extent of the whole list.
func (w *Window) TotalSize() int {
	if w.ItemCount <= 0 || w.EstimatedSize <= 0 {
		return 0
	}
	return w.ItemCount * w.EstimatedSize
}

// Range returns the inclusive index range intersecting the viewport,
// widened by Overscan on each side. A negative Overscan counts as zero.
// ok is false when nothing is rendered.
func (w *Window) Range() (lo, hi int, ok bool) {
	if w.ItemCount <= 0 || w.EstimatedSize <= 0 {
		return 0, -1, false
	}
	off := w.Offset
	if off < 0 {
		off = 0
	}
	lo = off / w.EstimatedSize
	hi = lo
	if w.Extent > 0 {
		// last index whose span starts before off+extent
		hi = (off + w.Extent - 1) / w.EstimatedSize
	}
	overscan := w.Overscan
	if overscan < 0 {
		overscan = 0
	}
	lo -= overscan
	hi += overscan
	if hi > w.ItemCount-1 {
		hi = w.ItemCount - 1
	}
	if lo > hi {
		// viewport scrolled past the end; keep the tail in view
		lo = hi
	}
	if lo < 0 {
		lo = 0
	}
	return lo, hi, true
}

// Items lists the rows to materialize with their pixel offsets.
func (w *Window) Items() []Item {
	lo, hi, ok := w.Range()
	if !ok {
		return nil
	}
	items := make([]Item, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		items = append(items, Item{Index: i, Offset: i * w.EstimatedSize})
	}
	return items
}

// ScrollToIndex moves Offset the least amount that makes item i fully
// visible. It does nothing for an empty list.
func (w *Window) ScrollToIndex(i int) {
	if w.ItemCount <= 0 || w.EstimatedSize <= 0 {
		return
	}
	i = clamp(i, 0, w.ItemCount-1)
	top := i * w.EstimatedSize
	bottom := top + w.EstimatedSize
	switch {
	case top < w.Offset:
		w.Offset = top
	case bottom > w.Offset+w.Extent:
		w.Offset = bottom - w.Extent
	}
	w.clampOffset()
}

// SetItemCount updates the list length, re-clamping the active index and
// offset before any scroll happens.
func (w *Window) SetItemCount(n int) {
	if n < 0 {
		n = 0
	}
	w.ItemCount = n
	if n == 0 {
		w.Active = -1
		w.Offset = 0
		return
	}
	if w.Active >= 0 {
		w.Active = clamp(w.Active, 0, n-1)
	}
	w.clampOffset()
}

// SetActive makes i the active index and scrolls it into view.
func (w *Window) SetActive(i int) {
	if w.ItemCount <= 0 {
		w.Active = -1
		return
	}
	w.Active = clamp(i, 0, w.ItemCount-1)
	w.ScrollToIndex(w.Active)
}

// MoveActive shifts the active index by delta, e.g. on arrow keys.
func (w *Window) MoveActive(delta int) {
	if w.Active < 0 {
		w.SetActive(0)
		return
	}
	w.SetActive(w.Active + delta)
}

func (w *Window) clampOffset() {
	maxOff := w.TotalSize() - w.Extent
	if maxOff < 0 {
		maxOff = 0
	}
	w.Offset = clamp(w.Offset, 0, maxOff)
}

// Slice returns the items of list inside the window's range along with the
// index of the first returned element.
func Slice[T any](list []T, w *Window) ([]T, int) {
	lo, hi, ok := w.Range()
	if !ok || lo >= len(list) {
		return nil, 0
	}
	if hi >= len(list) {
		hi = len(list) - 1
	}
	return list[lo : hi+1], lo
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
