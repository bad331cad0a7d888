// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package postgres

import (
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

func ulidToStringPtr(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseULID(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.Code("ROW_ID_INVALID").With("value", s).Wrap(err)
	}
	return id, nil
}

func parseOptionalULID(s *string) (*ulid.ULID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := parseULID(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
