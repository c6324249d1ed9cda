package resolve

import (
	"github.com/stitchkb/stitchkb/pkg/ident"
)

// Container identifies the artifact that declares a method.
type Container struct {
	Forge   string
	Product string
	Version string
}

// UnknownContainer is substituted when a call target's declaring container
// cannot be found in the type hierarchy, so that an edge is still recorded
// pointing at an unresolved method instead of failing resolution.
var UnknownContainer = Container{Product: "UNKNOWN"}

// Method is one deduplicated method reference discovered during resolution.
// It is a tagged variant: a resolved method carries the declaring container,
// an unresolved one does not. Both share the same identity key.
type Method struct {
	Namespace string
	Signature string

	// Resolved reports whether the declaring container was identified.
	// Container holds it when Resolved is true and UnknownContainer
	// otherwise.
	Resolved  bool
	Container Container

	// internal marks methods declared inside the analyzed artifact itself.
	// A resolved method of another artifact is external regardless.
	internal bool

	localID int64
}

// Key returns the stable identity key used to deduplicate repeated
// references to the same method.
func (m *Method) Key() string {
	return m.Namespace + "." + m.Signature
}

// LocalID returns the artifact-local integer ID assigned on first creation.
func (m *Method) LocalID() int64 {
	return m.localID
}

// URI builds the method's canonical identifier. Resolved methods carry their
// container's coordinates; unresolved methods render with the unknown
// container's product and no version.
func (m *Method) URI() ident.ID {
	return ident.ID{
		Forge:     m.Container.Forge,
		Product:   m.Container.Product,
		Version:   m.Container.Version,
		Namespace: m.Namespace,
		Entity:    m.Signature,
	}
}

// TypeURI builds the canonical identifier of the method's declaring type.
func (m *Method) TypeURI() ident.ID {
	return ident.ID{
		Forge:     m.Container.Forge,
		Product:   m.Container.Product,
		Version:   m.Container.Version,
		Namespace: m.Namespace,
	}
}
