/*
Package lcoll implements identity-mapped collections of records on top of
a key-value store (Bolt, Badger, or an in-memory map for tests).

We implement:

1. Collections, sets of records of a single model that hand out the same
in-memory instance for the same id until it is removed, write every change
through to the store, and notify observers when records are added or
removed.

2. Key indexes, the ordered, duplicate-free list of ids known to
a collection, persisted alongside the records.

3. Registries, the identity map one level up: a collection can itself be
persisted under an id in its model's namespace and re-obtained later as the
very same *Collection.

# Technical Details

**Namespaces.**
A store is split into namespaces. Bolt keeps one bucket per namespace; Badger
prefixes keys with the namespace name and a NUL byte.

**Model namespace.**
The namespace named after the model holds the root collection: root records
under their ids, the root key index under the reserved IndexKey ("\x00keys"),
and one id list per named collection under the collection's id. Records and
collections share the id space, so each entry carries its kind.

**Named collections.**
The records of collection "c" of model "users" live in namespace "users/c";
its key index is the id list stored under "c" in "users". That id list is the
whole persisted form of the collection.

**Ids.**
Ids are strings; integers and integral floats are converted to their decimal
form. Ids must be non-empty and must not start with a NUL byte.

## Binary encoding

**Entry**: flags (uvarint), data size (uvarint), data, checksum.

**Flags**: bits 0-3 hold the format version (1), bits 4-5 the kind
(1 = record, 2 = collection).

**Data**: msgpack of the record struct, or msgpack of the id list.

**Checksum**: xxhash64 of the data, big-endian.
*/
package lcoll
