/*
Copyright 2025 Storesync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package storesync

import (
	"errors"
	"fmt"
)

// ReferentialError marks an incoming record that references something not yet
// integrated. The record stays parked in the sync buffer and is retried on
// the next pass, when the missing dependency may have arrived.
type ReferentialError struct {
	Table    string
	RecordID string
	Missing  string
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("%s %s references missing record %s", e.Table, e.RecordID, e.Missing)
}

// OwnershipError marks an incoming update for a record owned by a store on
// this site that already exists locally. The local copy is authoritative and
// is never remotely mutated, so integration fails hard instead of parking.
type OwnershipError struct {
	Table    string
	RecordID string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("update rejected for %s %s, record is owned by this site", e.Table, e.RecordID)
}

// ConsistencyError marks a transfer document pair found in a state the
// lifecycle cannot produce, such as an inbound shipment whose source invoice
// regressed.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return e.Reason
}

func IsReferentialError(err error) bool {
	var target *ReferentialError
	return errors.As(err, &target)
}

func IsOwnershipError(err error) bool {
	var target *OwnershipError
	return errors.As(err, &target)
}
