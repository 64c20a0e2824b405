/*
Package storage provides the transactional key/value layer that alertd keeps
its alerts, triggers and users in.

Every service gets its own namespace from the Service and performs all reads
inside View and all writes inside Update. A write transaction is the unit of
atomicity: either every Put and Delete made inside it is committed or none is.

Objects are usually serialized whole and stored as a single value, with
secondary indexes maintained by an IndexedStore.
Updating one field of an object therefore rewrites the entire object, which is
fine for the small, rarely modified records stored here.

Two backends exist: a bbolt file and an in-memory map used by tests.
*/
package storage
