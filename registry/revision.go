package registry

import "fmt"

// ---------------------------------------------------------------------------
// Revisions
// ---------------------------------------------------------------------------

// Revision identifies one release of the instruction set and surface syntax.
type Revision struct {
	Tag   string // "3.8"
	Major int
	Minor int
	Magic uint16 // magic written by the final release

	// Magic numbers used by the release's alphas and betas are accepted too.
	MagicMin uint16
	MagicMax uint16
}

// AtLeast reports whether r is the given version or newer.
func (r Revision) AtLeast(major, minor int) bool {
	if r.Major != major {
		return r.Major > major
	}
	return r.Minor >= minor
}

// Before reports whether r is older than the given version.
func (r Revision) Before(major, minor int) bool {
	return !r.AtLeast(major, minor)
}

// HeaderSize returns the length of the artifact header preceding the marshal stream.
func (r Revision) HeaderSize() int {
	switch {
	case r.Major == 2, r.Before(3, 3):
		return 8 // magic, mtime
	case r.Before(3, 7):
		return 12 // magic, mtime, source size
	default:
		return 16 // magic, flags, mtime+size or source hash
	}
}

func (r Revision) String() string {
	return fmt.Sprintf("%s (magic %d)", r.Tag, r.Magic)
}

var revisions = []Revision{
	{Tag: "2.7", Major: 2, Minor: 7, Magic: 62211, MagicMin: 62171, MagicMax: 62211},
	{Tag: "3.0", Major: 3, Minor: 0, Magic: 3131, MagicMin: 3000, MagicMax: 3131},
	{Tag: "3.1", Major: 3, Minor: 1, Magic: 3151, MagicMin: 3140, MagicMax: 3151},
	{Tag: "3.2", Major: 3, Minor: 2, Magic: 3180, MagicMin: 3160, MagicMax: 3180},
	{Tag: "3.3", Major: 3, Minor: 3, Magic: 3230, MagicMin: 3190, MagicMax: 3230},
	{Tag: "3.4", Major: 3, Minor: 4, Magic: 3310, MagicMin: 3250, MagicMax: 3310},
	{Tag: "3.5", Major: 3, Minor: 5, Magic: 3351, MagicMin: 3320, MagicMax: 3351},
	{Tag: "3.6", Major: 3, Minor: 6, Magic: 3379, MagicMin: 3360, MagicMax: 3379},
	{Tag: "3.7", Major: 3, Minor: 7, Magic: 3394, MagicMin: 3390, MagicMax: 3394},
	{Tag: "3.8", Major: 3, Minor: 8, Magic: 3413, MagicMin: 3400, MagicMax: 3413},
	{Tag: "3.9", Major: 3, Minor: 9, Magic: 3425, MagicMin: 3420, MagicMax: 3425},
	{Tag: "3.10", Major: 3, Minor: 10, Magic: 3439, MagicMin: 3430, MagicMax: 3439},
	{Tag: "3.11", Major: 3, Minor: 11, Magic: 3495, MagicMin: 3450, MagicMax: 3495},
	{Tag: "3.12", Major: 3, Minor: 12, Magic: 3531, MagicMin: 3500, MagicMax: 3531},
	{Tag: "3.13", Major: 3, Minor: 13, Magic: 3571, MagicMin: 3550, MagicMax: 3571},
}

// Revisions returns every supported revision, oldest first.
func Revisions() []Revision {
	out := make([]Revision, len(revisions))
	copy(out, revisions)
	return out
}

func revisionByTag(tag string) (Revision, bool) {
	for _, r := range revisions {
		if r.Tag == tag {
			return r, true
		}
	}
	return Revision{}, false
}

func revisionByMagic(magic uint16) (Revision, bool) {
	for _, r := range revisions {
		if magic >= r.MagicMin && magic <= r.MagicMax {
			return r, true
		}
	}
	return Revision{}, false
}
