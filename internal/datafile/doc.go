// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package datafile contains the record layout of datapack data files,
// along with a buffered writer that tracks offsets and the running
// content hash of everything written.
//
// A data file looks like:
//
//	┌───────────────────┐
//	│ version (1 byte)  │
//	├───────────────────┤
//	│ repeated records  │
//	│                   │
//	│                   │
//	└───────────────────┘
//
// Records are variable length.  All multi-byte integers are big-endian:
//
//	+----------+---------+---------+---------+----------+------------+----------+
//	| path len | path... | id (20) | base    | data len | compressed | metadata |
//	| (u16)    |         |         | id (20) | (u64)    | data...    | (v1)     |
//	+----------+---------+---------+---------+----------+------------+----------+
//
// A base id of all zeroes marks a full text.  Version 1 records end with a
// metadata block: a u32 length followed by items made of a 1-byte tag, a
// u16 value length and the value.  Version 0 records have no metadata.
package datafile
