// Package server implements the HTTP front-end and the UDP relay server.
// The front-end forwards each POSTed form body as one datagram; the relay
// receives datagrams sequentially and hands them to a Sink for storage.
// The two only talk over the network.
package server
