// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "strings"

const sharedPrefix = "$share/"

// IsTopicFilterMatch reports whether topicName matches topicFilter, including
// the + and # wildcards and $share/<group>/ shared subscriptions.
func IsTopicFilterMatch(topicFilter, topicName string) bool {
	if tf, ok := strings.CutPrefix(topicFilter, sharedPrefix); ok {
		_, rest, found := strings.Cut(tf, "/")
		if !found {
			return false
		}
		topicFilter = rest
	}

	// Wildcards at the first level never match $-prefixed system topics.
	if strings.HasPrefix(topicName, "$") &&
		(strings.HasPrefix(topicFilter, "+") ||
			strings.HasPrefix(topicFilter, "#")) {
		return false
	}

	filter, name := topicFilter, topicName
	for {
		f, fRest, fMore := strings.Cut(filter, "/")
		if f == "#" {
			return !fMore
		}

		n, nRest, nMore := strings.Cut(name, "/")
		if f != "+" && f != n {
			return false
		}
		if !fMore || !nMore {
			// A trailing "/#" also matches its parent level.
			return fMore == nMore || (fMore && fRest == "#")
		}
		filter, name = fRest, nRest
	}
}
