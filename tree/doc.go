// Package tree answers structural questions about rows held in a flat store.
//
// An [Adapter] translates one tree encoding into three primitive queries,
// all addressed by the row's current array index:
//
//   - HasChildren: may the row have descendants? (a declared signal, not a scan)
//   - HasParent: is the row something other than a root?
//   - ParentIndex: where is the parent right now, if it is loaded at all?
//
// Two encodings are provided and selected by [Config.Kind]:
//
//   - [ParentPointer]: each row names its parent's primary key; roots carry a
//     sentinel (-1 by default) and a folder column marks expandable rows.
//   - [NestedSet]: each row carries a left/right interval enclosing its
//     descendants.
//
// Adapters hold no state besides their configuration. Every query re-reads
// the store, so answers always reflect the store's current contents even
// after rows were inserted by a progressive load. Indices returned by one
// query become stale as soon as the store mutates; persist primary keys
// instead.
//
// A parent that is not currently in the store is reported as not-found
// (ok == false), never as an error. This covers both "not fetched yet" and
// genuinely dangling references, which cannot be told apart without a
// complete dataset.
package tree
