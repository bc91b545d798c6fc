// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ProtoFile is the path of the schema, see proto/tmpvault/v1/vault.proto.
const ProtoFile = "tmpvault/v1/vault.proto"

const protoPackage = "tmpvault.v1"

type fieldDef struct {
	name     string
	kind     descriptorpb.FieldDescriptorProto_Type
	typeName string
	repeated bool
}

type messageDef struct {
	name   string
	fields []fieldDef
}

var (
	tString = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes  = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tInt64  = descriptorpb.FieldDescriptorProto_TYPE_INT64
	tBool   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tMsg    = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

// Field numbers follow the position in the list, starting at 1. Keep the
// order in sync with vault.proto.
var messageDefs = []messageDef{
	{name: "CreateSessionRequest", fields: []fieldDef{
		{name: "user_id", kind: tString},
		{name: "payload", kind: tBytes},
	}},
	{name: "Session", fields: []fieldDef{
		{name: "id", kind: tString},
		{name: "user_id", kind: tString},
		{name: "payload", kind: tBytes},
		{name: "created_at_unix_nano", kind: tInt64},
	}},
	{name: "StoreSecretRequest", fields: []fieldDef{
		{name: "name", kind: tString},
		{name: "value", kind: tBytes},
		{name: "ttl_seconds", kind: tInt64},
	}},
	{name: "SecretInfo", fields: []fieldDef{
		{name: "id", kind: tString},
		{name: "name", kind: tString},
		{name: "created_at_unix_nano", kind: tInt64},
		{name: "expires_at_unix_nano", kind: tInt64},
		{name: "status", kind: tString},
	}},
	{name: "Secret", fields: []fieldDef{
		{name: "info", kind: tMsg, typeName: "SecretInfo"},
		{name: "value", kind: tBytes},
	}},
	{name: "SecretList", fields: []fieldDef{
		{name: "secrets", kind: tMsg, typeName: "SecretInfo", repeated: true},
	}},
	{name: "SecurityInfo", fields: []fieldDef{
		{name: "backend", kind: tString},
		{name: "location", kind: tString},
		{name: "volatile", kind: tBool},
		{name: "cipher", kind: tString},
		{name: "active_sessions", kind: tInt64},
		{name: "secrets", kind: tInt64},
		{name: "pending_expiries", kind: tInt64},
	}},
}

var schema = mustBuildSchema()

func buildSchema() (protoreflect.FileDescriptor, error) {
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(ProtoFile),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto3"),
	}
	for _, md := range messageDefs {
		dp := &descriptorpb.DescriptorProto{Name: proto.String(md.name)}
		for i, f := range md.fields {
			label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
			if f.repeated {
				label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
			}
			field := &descriptorpb.FieldDescriptorProto{
				Name:   proto.String(f.name),
				Number: proto.Int32(int32(i + 1)), //nolint:gosec
				Label:  label.Enum(),
				Type:   f.kind.Enum(),
			}
			if f.typeName != "" {
				field.TypeName = proto.String("." + protoPackage + "." + f.typeName)
			}
			dp.Field = append(dp.Field, field)
		}
		fdp.MessageType = append(fdp.MessageType, dp)
	}
	return protodesc.NewFile(fdp, new(protoregistry.Files))
}

func mustBuildSchema() protoreflect.FileDescriptor {
	fd, err := buildSchema()
	if err != nil {
		panic(fmt.Sprintf("building %s: %v", ProtoFile, err))
	}
	return fd
}

func descriptor(name string) protoreflect.MessageDescriptor {
	md := schema.Messages().ByName(protoreflect.Name(name))
	if md == nil {
		panic("unknown message " + name)
	}
	return md
}

// message is a schema checked protobuf message. Typed wrappers embed it
// and expose getters, so the messages go over the wire with the default
// grpc proto codec.
type message struct {
	msg protoreflect.Message
}

func newMessage(name string) message {
	return message{dynamicpb.NewMessage(descriptor(name))}
}

// ProtoReflect implements proto.Message.
func (m message) ProtoReflect() protoreflect.Message { return m.msg }

func (m message) field(name string) protoreflect.FieldDescriptor {
	fd := m.msg.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("%s has no field %s", m.msg.Descriptor().FullName(), name))
	}
	return fd
}

func (m message) getString(name string) string { return m.msg.Get(m.field(name)).String() }

func (m message) setString(name, v string) { m.msg.Set(m.field(name), protoreflect.ValueOfString(v)) }

func (m message) getBytes(name string) []byte {
	b := m.msg.Get(m.field(name)).Bytes()
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func (m message) setBytes(name string, v []byte) {
	m.msg.Set(m.field(name), protoreflect.ValueOfBytes(append([]byte(nil), v...)))
}

func (m message) getInt(name string) int64 { return m.msg.Get(m.field(name)).Int() }

func (m message) setInt(name string, v int64) { m.msg.Set(m.field(name), protoreflect.ValueOfInt64(v)) }

func (m message) getBool(name string) bool { return m.msg.Get(m.field(name)).Bool() }

func (m message) setBool(name string, v bool) { m.msg.Set(m.field(name), protoreflect.ValueOfBool(v)) }
