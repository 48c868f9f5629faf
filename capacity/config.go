package capacity

const (
	// DefaultItemSizeFloorGiB applies when the configured floor is 0.
	DefaultItemSizeFloorGiB = 1

	// DefaultItemSizeCeilingGiB applies when the configured ceiling is 0.
	DefaultItemSizeCeilingGiB = 1024

	// DefaultProtectedUploadRate is the upload rate (bytes/s) above which a
	// torrent is never evicted.
	DefaultProtectedUploadRate = 500 * KiB
)

// Config holds the capacity limits, all in bytes. Build it with NewConfig so
// defaults and the floor/ceiling ordering are applied.
type Config struct {
	MaxItemCount         int
	MaxTotalSizeBytes    int64 // 0 disables the aggregate size ceiling
	ItemSizeFloorBytes   int64
	ItemSizeCeilingBytes int64
	MinFreeDiskBytes     int64
	ProtectedUploadRate  int64
}

// Limits are capacity settings as configured, sizes in GiB.
type Limits struct {
	MaxItemCount       int
	MaxTotalSizeGiB    int64
	ItemSizeFloorGiB   int64
	ItemSizeCeilingGiB int64
	MinFreeDiskGiB     int64
	ProtectedUploadKiB int64
}

// NewConfig converts GiB limits to a byte-based Config. A zero floor or
// ceiling takes its default, and an inverted pair is swapped.
func NewConfig(l Limits) Config {
	floor := l.ItemSizeFloorGiB
	if floor == 0 {
		floor = DefaultItemSizeFloorGiB
	}

	ceiling := l.ItemSizeCeilingGiB
	if ceiling == 0 {
		ceiling = DefaultItemSizeCeilingGiB
	}

	if floor > ceiling {
		floor, ceiling = ceiling, floor
	}

	protected := DefaultProtectedUploadRate
	if l.ProtectedUploadKiB > 0 {
		protected = l.ProtectedUploadKiB * KiB
	}

	return Config{
		MaxItemCount:         l.MaxItemCount,
		MaxTotalSizeBytes:    GiBToBytes(l.MaxTotalSizeGiB),
		ItemSizeFloorBytes:   GiBToBytes(floor),
		ItemSizeCeilingBytes: GiBToBytes(ceiling),
		MinFreeDiskBytes:     GiBToBytes(l.MinFreeDiskGiB),
		ProtectedUploadRate:  protected,
	}
}
