// Package vaultflow implements a file-based task queue with a human approval
// gate. A directory of Markdown files is the entire system state: producers
// drop task files into the pending folder, a single poll loop classifies,
// routes and executes them, and sensitive actions block on approval request
// files a human resolves by editing frontmatter in any text editor.
//
// The engine has no database and no network surface. Restart recovery is a
// re-read of the directory tree, and every mutation is an atomic file write
// so a concurrent editor never sees a partial document.
//
// Embedding applications interact through the root façade:
//
//	srv, _ := vaultflow.New(ctx, vaultflow.DefaultConfig("/home/user/vault"))
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	defer rt.Shutdown(ctx)
//
// For one-shot use (cron, CLI) run a single cycle instead:
//
//	report, _ := rt.RunCycle(ctx)
//
// See the sub-packages for the individual service layers: store/fs (vault
// store), classifier, router, approval (gate), archiver, watcher (engine).
package vaultflow
