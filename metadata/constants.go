package metadata

// TableID identifies one of the 64 metadata table positions (spec.md §3).
type TableID byte

// Table IDs this interpreter assigns structural meaning to. Every other
// position is a valid TableID with a row width (possibly zero) but no
// named constant or typed accessor, since no operation in spec.md §4
// needs to read it.
const (
	TableModule          TableID = 0x00
	TableTypeRef         TableID = 0x01
	TableTypeDef         TableID = 0x02
	TableField           TableID = 0x04
	TableMethodDef       TableID = 0x06
	TableParam           TableID = 0x08
	TableMemberRef       TableID = 0x0A
	TableCustomAttribute TableID = 0x0C
	TableClassLayout     TableID = 0x0F
	TableAssembly        TableID = 0x20
	TableAssemblyRef     TableID = 0x23
)

func (id TableID) String() string {
	switch id {
	case TableModule:
		return "Module"
	case TableTypeRef:
		return "TypeRef"
	case TableTypeDef:
		return "TypeDef"
	case TableField:
		return "Field"
	case TableMethodDef:
		return "MethodDef"
	case TableParam:
		return "Param"
	case TableMemberRef:
		return "MemberRef"
	case TableCustomAttribute:
		return "CustomAttribute"
	case TableClassLayout:
		return "ClassLayout"
	case TableAssembly:
		return "Assembly"
	case TableAssemblyRef:
		return "AssemblyRef"
	default:
		return "table#" + itoa(int(id))
	}
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [8]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// RowWidths gives the fixed row width in bytes for each of the 64 table
// positions, assuming small heaps and small table indices (≤2^16 rows and
// ≤64KiB heaps), per spec.md §6.3. This constant table is normative: it
// is not derived from any particular image's heap-size flags, which is
// why loading an image that actually needs large indices must fail with
// UnsupportedImage rather than silently misreading rows.
var RowWidths = [64]int{
	0x0A, 0x06, 0x0E, 0x00, 0x06, 0x00, 0x0E, 0x00,
	0x06, 0x00, 0x06, 0x00, 0x06, 0x00, 0x00, 0x00,
	0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x16, 0x00, 0x00, 0x14, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Heap-size flag bits within the #~ stream header's HeapSizes byte.
const (
	heapFlagLargeStrings = 1 << 0
	heapFlagLargeGUID    = 1 << 1
	heapFlagLargeBlob    = 1 << 2
)

// Known stream names (spec.md §4.C / §6.2).
const (
	streamTilde  = "#~"
	streamStrings = "#Strings"
	streamUS     = "#US"
	streamBlob   = "#Blob"
	streamGUID   = "#GUID"
)
