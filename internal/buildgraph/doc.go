// Package buildgraph wires internal/persistence's object pool to §4.7's
// change-tracking snapshot: the per-project data a setup job needs to
// decide, on the next run, whether a full re-resolve is required or a
// stored graph can be reused. It is the thing cmd/kestrel actually saves
// to and loads from the build-graph file; internal/persistence.Pool only
// knows about bytes and type tags, internal/changetrack only knows about
// decision logic over already-in-memory structs, and internal/graph's
// live *graph.Project is not itself serializable (its rule nodes close
// over script.PrepareFunc/OutputArtifactsFunc values). Snapshot is the
// serializable middle layer between the three.
package buildgraph
