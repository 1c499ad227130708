package gpu

type ASKind int

const (
	ASBottomLevel ASKind = iota
	ASTopLevel
)

// ASBuildFlags are hints passed to the builder.
type ASBuildFlags uint32

const (
	ASPreferFastTrace ASBuildFlags = 1 << iota
	ASPreferFastBuild
	ASAllowUpdate
)

// ASTriangles describes one triangle geometry of a bottom level structure.
type ASTriangles struct {
	VertexAddress  uint64
	VertexStride   uint64
	VertexFormat   Format
	MaxVertex      uint32
	IndexAddress   uint64
	IndexType      IndexType
	PrimitiveCount uint32
	// Byte offset of the first index into the index buffer.
	FirstIndexOffset uint32
	Opaque           bool
}

// ASInstances describes the instance array of a top level structure.
type ASInstances struct {
	Address uint64
	Count   uint32
}

type ASGeometry struct {
	Triangles *ASTriangles
	Instances *ASInstances
}

type ASBuildSizes struct {
	StorageSize uint64
	ScratchSize uint64
}

type ASBuildInfo struct {
	Kind       ASKind
	Flags      ASBuildFlags
	Dst        AccelerationStructure
	Geometries []ASGeometry
	Scratch    uint64
}

type AccelerationStructure interface {
	Destroyer
	Address() uint64
}

// InstanceSize is the byte size of one packed TLAS instance record.
const InstanceSize = 64

// RayTracer is the optional acceleration structure extension of a Device.
type RayTracer interface {
	BuildSizes(kind ASKind, flags ASBuildFlags, geoms []ASGeometry) (ASBuildSizes, error)
	NewAccelerationStructure(kind ASKind, storage Buffer, offset, size uint64) (AccelerationStructure, error)
	MinScratchAlignment() uint64
}
