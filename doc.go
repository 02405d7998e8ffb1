// Package board stages post attachments while a draft is being composed and
// uploads them only when the draft is saved.
//
// A Session owns the attachments of one draft. Staging a file is local and
// instant: the file gets an id and a preview reference the editor can render
// right away. Nothing reaches the network until Commit, which uploads every
// pending file concurrently, and only if all of them succeed rewrites the
// draft content so that preview references point at the durable URLs.
//
// # Basic Usage
//
//	s := board.NewSession(board.WithLogger(logger))
//	defer s.Cleanup()
//
//	// Composition surface: the user inserts a file.
//	f, err := board.NewFile("photo.png", r)
//	if err != nil { ... }
//	if err := board.DefaultLimits().Check(f, s.PendingCount()); err != nil { ... }
//	a := s.Stage(f)
//	content += board.Embed(a)
//
//	// Submission form: the user saves the post.
//	content, err = s.Commit(ctx, content, client.New("https://board.example.com"))
//	if ue, ok := board.IsUploadError(err); ok {
//	    // Nothing was committed; show ue.Filenames() and let the user retry.
//	}
//
// # Uploaders
//
// Commit takes any Uploader. The client package talks to the upload endpoint
// over HTTP; the uploads package offers an in-process uploader backed by a
// store.FileStore. Uploaders that also implement Remover let a session delete
// uploads from a failed or abandoned commit; uploads the endpoint reports as
// deduplicated are never deleted.
//
// The upload service sweeps uploads that nothing references. Both uploaders
// implement Referencer, so Commit references every new upload before it
// rewrites the content. With an uploader that does not, the caller must add
// the references itself once the post is saved, or the committed URLs are
// swept after the service's grace period.
//
// # Previews
//
// Preview references come from a PreviewStore. The default MemoryPreviews keeps
// content in memory and can serve it as an http.Handler. Cleanup releases every
// preview exactly once, whether or not the draft was committed.
package board
