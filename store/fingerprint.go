// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintDelimiter separates the fields inside the digested string. The
// delimiter is part of the persisted hash contract; changing it would orphan
// every stored duplicate_check_hash.
const fingerprintDelimiter = "|"

// Fingerprint computes the duplicate-detection digest for an order: SHA-256
// over the UTF-8 encoding of patientID|medicationName|providerNPI, returned
// as 64 lowercase hex characters. It is a pure function of its inputs and
// stable across process restarts.
func Fingerprint(patientID, medicationName, providerNPI string) string {
	joined := strings.Join([]string{patientID, medicationName, providerNPI}, fingerprintDelimiter)
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
