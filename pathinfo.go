package narstore

// PathInfo is a frozen metadata snapshot for one store object. It is owned
// by the caller once returned and holds no reference to the backend; the
// reference set reflects the object's direct dependency edges at query time
// and never changes afterwards.
type PathInfo struct {
	// Path is the store path this snapshot describes.
	Path StorePath

	// NarHash is the SHA-256 digest of the object's NAR serialization.
	NarHash Hash

	// NarSize is the byte count of the NAR serialization. Non-negative.
	NarSize int64

	// References are the direct dependency edges, sorted by base name.
	// May include Path itself.
	References []StorePath

	// Sigs are opaque signature strings, in recorded order. Not validated
	// at this layer.
	Sigs []string

	// CA is the rendered content address, or "" when the object is not
	// content-addressed.
	CA string
}

// ContentAddressed reports whether the object carries a content address.
func (pi *PathInfo) ContentAddressed() bool { return pi.CA != "" }
