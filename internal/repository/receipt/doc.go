// Package receipt persists the record of the last staging pass.
//
// FileRepository stores a Receipt as JSON produced by protojson from a
// structpb.Struct, so the file stays readable by any protobuf JSON consumer.
package receipt
