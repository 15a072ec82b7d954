// Package fs is the file boundary used by the vector store.
//
// Every durable byte the index writes goes through [File]: seek, bounded read,
// write, sync and close are separate calls and each one can fail on its own.
// [LocalFS] is the production implementation. [FaultyFS] wraps any
// [FileSystem] and injects failures at a chosen stage, which is how the
// store's crash-safety is tested:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("shard-003", fs.Fault{FailOnClose: true})
//	// writes and syncs succeed, Close returns an error
//
// There is no context.Context on these calls; local file operations are not
// interruptible at the syscall level.
package fs
