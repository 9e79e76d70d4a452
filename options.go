package narstore

// DefaultChunkSize is the export chunk size when none is configured.
const DefaultChunkSize = 64 * 1024

// DefaultExportBuffer is the number of outstanding chunks an export bridge
// buffers before the producer blocks.
const DefaultExportBuffer = 16

// Options configures a Store.
type Options struct {
	StoreDir     string
	Database     string
	Backend      Backend
	ChunkSize    int
	ExportBuffer int
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		StoreDir:     ambient.storeDir,
		Database:     ambient.database,
		ChunkSize:    DefaultChunkSize,
		ExportBuffer: DefaultExportBuffer,
	}
}

// WithStoreDir sets the store root directory.
func WithStoreDir(dir string) Option {
	return func(o *Options) { o.StoreDir = dir }
}

// WithDatabase sets the metadata database path.
func WithDatabase(path string) Option {
	return func(o *Options) { o.Database = path }
}

// WithBackend injects a Backend directly, bypassing the local store.
func WithBackend(be Backend) Option {
	return func(o *Options) { o.Backend = be }
}

// WithChunkSize sets the export chunk size in bytes.
func WithChunkSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ChunkSize = n
		}
	}
}

// WithExportBuffer sets how many chunks an export bridge may buffer.
func WithExportBuffer(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ExportBuffer = n
		}
	}
}
