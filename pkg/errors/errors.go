// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeVisibilityParseInvalidFormat Code = "visibility.expression.parse.invalid_format"

	CodeKVBackendUnsupported     Code = "kv.backend.unsupported"
	CodeKVBackendFailure         Code = "kv.backend.failure"
	CodeKVTableNotFound          Code = "kv.table.not_found"
	CodeKVTableCreateFailure     Code = "kv.table.create.failure"
	CodeKVMutationInvalidInput   Code = "kv.mutation.invalid_input"
	CodeKVWriterClosed           Code = "kv.writer.closed"
	CodeKVBackendReadFailure     Code = "kv.backend.read.failure"
	CodeKVKeyDecodeInvalidFormat Code = "kv.key.decode.invalid_format"

	CodeGraphQualifierDecodeInvalidFormat Code = "graph.qualifier.decode.invalid_format"
	CodeGraphEdgeInfoDecodeInvalidFormat  Code = "graph.edgeinfo.decode.invalid_format"
	CodeGraphRowDecodeInvalidFormat       Code = "graph.row.decode.invalid_format"
	CodeGraphValueDecodeInvalidFormat     Code = "graph.value.decode.invalid_format"
	CodeGraphValueEncodeFailure           Code = "graph.value.encode.failure"
	CodeGraphElementInvalidInput          Code = "graph.element.invalid_input"
	CodeGraphPropertyInvalidInput         Code = "graph.property.invalid_input"
	CodeGraphPropertyAlterNotFound        Code = "graph.property.alter.not_found"
	CodeGraphVertexNotFound               Code = "graph.vertex.not_found"
	CodeGraphEdgeNotFound                 Code = "graph.edge.not_found"
	CodeGraphEdgeVertexInvalidInput       Code = "graph.edge.vertex.invalid_input"
	CodeGraphBackendWriteFailure          Code = "graph.backend.write.failure"
	CodeGraphBackendReadFailure           Code = "graph.backend.read.failure"
	CodeGraphOpenFailure                  Code = "graph.open.failure"
	CodeGraphStreamingReadFailure         Code = "graph.streaming.read.failure"
	CodeGraphQueryInvalidInput            Code = "graph.query.invalid_input"
	CodeGraphPathInvalidInput             Code = "graph.path.invalid_input"

	CodeSearchIndexFailure Code = "search.index.failure"
	CodeSearchQueryFailure Code = "search.query.failure"

	CodeBlobObjectNotFound Code = "blob.object.not_found"
	CodeBlobWriteFailure   Code = "blob.write.failure"
	CodeBlobReadFailure    Code = "blob.read.failure"

	CodeSerializerEncodeFailure Code = "serializer.encode.failure"
	CodeSerializerDecodeFailure Code = "serializer.decode.failure"

	CodeIngestRecordInvalidFormat Code = "ingest.record.invalid_format"
	CodeIngestLoadFailure         Code = "ingest.load.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"
	CodeServerAuthForbidden    Code = "server.auth.forbidden"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeServerEntityNotFound   Code = "server.entity.not_found"
	CodeServerConfigInvalid    Code = "server.config.invalid"
	CodeServerStartFailure     Code = "server.start.failure"
	CodeServerShutdownFailure  Code = "server.shutdown.failure"
	CodeServerNotImplemented   Code = "server.method.not_implemented"

	CodeSecretInvalidInput   Code = "secret.input.invalid"
	CodeSecretNotFound       Code = "secret.entry.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeCLIServerNotRunning Code = "cli.server.not_running"
	CodeCLIRequestFailure   Code = "cli.request.failure"
	CodeCLIResponseInvalid  Code = "cli.response.invalid"
	CodeCLISetupFailure     Code = "cli.setup.failure"
	CodeCLIInputInvalid     Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldElementID(value string) Attr {
	return Field("element_id", value)
}

func FieldTable(value string) Attr {
	return Field("table", value)
}

func FieldRow(value string) Attr {
	return Field("row", value)
}

func FieldVisibility(value string) Attr {
	return Field("visibility", value)
}

func FieldOperation(value string) Attr {
	return Field("operation", value)
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden"
}

func IsUnsupported(err error) bool {
	return reason(CodeOf(err)) == "unsupported"
}

// IsMalformed reports whether err came from decoding stored data that does
// not follow the storage layout.
func IsMalformed(err error) bool {
	code := string(CodeOf(err))
	return reason(Code(code)) == "invalid_format" && strings.Contains(code, ".decode.")
}

func HTTPStatus(err error) int {
	switch {
	case HasCode(err, CodeServerNotImplemented):
		return http.StatusNotImplemented
	case IsNotFound(err):
		return http.StatusNotFound
	case IsMalformed(err):
		return http.StatusInternalServerError
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		if reason(CodeOf(err)) == "forbidden" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
