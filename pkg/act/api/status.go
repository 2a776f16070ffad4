// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package api exposes actions over HTTP and provides the matching client.
//
// Calls are POST requests to {endpoint}/{path/to/action} whose body is a
// wire-encoded argument list. A successful call streams the encoded result.
// Redirect and not-found signals become 3xx and 404 responses, and failures
// become JSON bodies of the form {"message": "..."}.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
)

var (
	ErrExhausted   = status.New(codes.ResourceExhausted, "resource exhausted").Err()
	ErrUnavailable = status.New(codes.Unavailable, "service unavailable").Err()
)

// AsStatus creates a gRPC status with the given code and error message.
// Optionally accepts status details to attach to the error.
func AsStatus(code codes.Code, err error, details ...proto.Message) error {
	s := status.New(code, err.Error())
	if len(details) == 0 {
		return s.Err()
	}
	p := s.Proto()
	for _, detail := range details {
		m, err := anypb.New(detail)
		if err != nil {
			log.Printf("Skipping detail which failed to convert: detail=%v,err=%v", detail, err)
			continue
		}
		p.Details = append(p.Details, m)
	}
	return status.FromProto(p).Err()
}

// RetryAfter is a convenience function for creating a detail proto for retry information.
// NOTE: For HTTP, should be limited to use with Unavailable and ResourceExhausted codes.
func RetryAfter(after time.Duration) proto.Message {
	return &errdetails.RetryInfo{
		RetryDelay: durationpb.New(after),
	}
}

var grpcToHTTP = map[codes.Code]int{
	codes.OK:                 http.StatusOK,
	codes.Canceled:           499, // Client Closed Request
	codes.Unknown:            http.StatusInternalServerError,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.Aborted:            http.StatusConflict,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Internal:           http.StatusInternalServerError,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DataLoss:           http.StatusInternalServerError,
	codes.Unauthenticated:    http.StatusUnauthorized,
}

// httpStatus maps a gRPC status to an HTTP status, setting Retry-After on rw
// when the status carries retry information.
func httpStatus(rw http.ResponseWriter, s *status.Status) int {
	for _, detail := range s.Details() {
		switch d := detail.(type) {
		case *errdetails.RetryInfo:
			if d.RetryDelay != nil {
				if seconds := int(d.RetryDelay.Seconds); seconds > 0 {
					rw.Header().Set("Retry-After", strconv.Itoa(seconds))
				}
			}
		}
	}
	code, ok := grpcToHTTP[s.Code()]
	if !ok {
		log.Printf("unknown error code: %s\n", s.Code())
		code = http.StatusInternalServerError
	}
	if code == http.StatusOK {
		code = http.StatusInternalServerError
	}
	return code
}

// statusFromResponse converts throttling responses into gRPC errors.
func statusFromResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusServiceUnavailable:
		if retryAfterStr := resp.Header.Get("Retry-After"); retryAfterStr != "" {
			if seconds, err := strconv.Atoi(retryAfterStr); err == nil && seconds > 0 {
				d := time.Duration(seconds) * time.Second
				return AsStatus(codes.Unavailable, ErrUnavailable, RetryAfter(d))
			}
		}
		return ErrUnavailable
	case http.StatusTooManyRequests:
		return ErrExhausted
	}
	return nil
}
