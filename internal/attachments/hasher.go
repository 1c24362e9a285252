// Copyright (c) 2026 John Earle
//
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

// Package attachments computes multi-digest hashes for email attachments,
// detects in-transit tampering and MIME masquerading, and checks content
// hashes against a malware database.
package attachments

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/bcem/analysis/internal/models"
)

// ComputeHashes feeds the content through all four digests in a single pass.
func ComputeHashes(r io.Reader) (models.HashSet, error) {
	md5h := md5.New()
	sha1h := sha1.New()
	sha256h := sha256.New()
	sha512h := sha512.New()

	if _, err := io.Copy(io.MultiWriter(md5h, sha1h, sha256h, sha512h), r); err != nil {
		return models.HashSet{}, fmt.Errorf("hash content: %w", err)
	}

	return models.HashSet{
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1h.Sum(nil)),
		SHA256: hex.EncodeToString(sha256h.Sum(nil)),
		SHA512: hex.EncodeToString(sha512h.Sum(nil)),
	}, nil
}
