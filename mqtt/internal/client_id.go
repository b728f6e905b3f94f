// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"strings"

	"github.com/google/uuid"
)

// ClientIDs must be between 1 and 23 UTF-8 encoded bytes in length:
// https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901059
const MaxClientIDLength = 23

// RandomClientID generates a client ID from the prefix and random hex digits,
// truncated to the maximum client ID length.
func RandomClientID(prefix string) string {
	id := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(id) > MaxClientIDLength {
		id = id[:MaxClientIDLength]
	}
	return id
}
