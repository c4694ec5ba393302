package sapling

import "errors"

// Structural errors. A call that returns one of these leaves the tree and any
// batch it touched exactly as it was before the call.
var (
	ErrNilNode         = errors.New("sapling: nil node")
	ErrCycle           = errors.New("sapling: node would become its own ancestor")
	ErrNotChild        = errors.New("sapling: node is not a child of this container")
	ErrNotContainer    = errors.New("sapling: node is not a container")
	ErrIndexOutOfRange = errors.New("sapling: child index out of range")
	ErrNotConnected    = errors.New("sapling: nodes do not share a common ancestor")
	ErrBatchFull       = errors.New("sapling: quad batch capacity exceeded")
	ErrUnsupportedNode = errors.New("sapling: unsupported node type")
	ErrFlatten3D       = errors.New("sapling: 3D subtrees cannot be flattened")
	ErrMaskInUse       = errors.New("sapling: node is already the mask of another node")
	ErrDisposed        = errors.New("sapling: node has been disposed")
	ErrFramedTexture   = errors.New("sapling: textures with a frame can only be used on quads")
	ErrMixedTextures   = errors.New("sapling: textures do not share a base texture")
)

// Resource errors.
var (
	// ErrMissingContext is returned when a GPU operation is attempted while no
	// device is attached or the device has lost its context.
	ErrMissingContext = errors.New("sapling: missing GPU context")

	// ErrUnsupportedResource is returned when a resource created by one Device
	// is handed to code that only understands another.
	ErrUnsupportedResource = errors.New("sapling: unsupported GPU resource")
)
