// Package catalog holds the durable operation catalog: the Source and
// Operation models, the classifier that derives (resource, action,
// hasPathParams) from a method and path template, and the store used
// read-only by the runtime and read-write by the sync process.
//
// Selection against the catalog is exact-match filtering on the classified
// columns. The classifier is the single place heuristics live; any
// misclassification propagates to every later selection, so it is tested
// exhaustively, including property tests over generated templates.
package catalog
