package mm

import "strings"

// MappingFlags describes the permissions and attributes of a virtual memory
// mapping independently of the page table entry encoding.
type MappingFlags uint32

const (
	// FlagRead allows the mapping to be read.
	FlagRead MappingFlags = 1 << iota

	// FlagWrite allows the mapping to be written to.
	FlagWrite

	// FlagExecute allows instructions to be fetched from the mapping.
	FlagExecute

	// FlagUser makes the mapping accessible from user-mode.
	FlagUser

	// FlagDevice marks the mapping as device memory (strongly ordered,
	// never cached).
	FlagDevice

	// FlagUncached disables caching for the mapping.
	FlagUncached
)

var flagNames = []struct {
	flag MappingFlags
	name string
}{
	{FlagRead, "READ"},
	{FlagWrite, "WRITE"},
	{FlagExecute, "EXECUTE"},
	{FlagUser, "USER"},
	{FlagDevice, "DEVICE"},
	{FlagUncached, "UNCACHED"},
}

// Contains returns true if f includes every flag in other.
func (f MappingFlags) Contains(other MappingFlags) bool {
	return f&other == other
}

// String implements fmt.Stringer for MappingFlags.
func (f MappingFlags) String() string {
	if f == 0 {
		return "NONE"
	}

	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
