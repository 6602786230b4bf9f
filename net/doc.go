// Package net implements the datagram transport: the 9 byte wire header,
// fragmentation and reassembly of messages, connections, the per-protocol
// connection managers that drive socket receive loops, and the Network that
// owns them.
//
// Messages are written with the typed codec of package buffer. Every
// datagram is sealed by an encryption.Algorithm before it leaves a socket.
package net
