/*
SPDX-License-Identifier: GPL-3.0-or-later

Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com

This file is part of GoSight.

GoSight is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GoSight is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GoSight. If not, see https://www.gnu.org/licenses/.
*/

package sparkplug

import (
	"errors"
	"strings"
)

// ErrUnrecognizedTopic is returned for anything not shaped like
// spBv1.0/<group>/<msgType>/<edge>[/<device>].
var ErrUnrecognizedTopic = errors.New("sparkplug: unrecognized topic")

// Topic is a parsed Sparkplug B topic.
type Topic struct {
	Group    string
	MsgType  string // NBIRTH | DBIRTH | DDATA | NDATA | ...
	Edge     string
	Device   string // "" for node-scoped messages
}

// ParseTopic parses "spBv1.0/<group>/<msgType>/<edge>[/<device>]".
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != "spBv1.0" {
		return Topic{}, ErrUnrecognizedTopic
	}
	t := Topic{
		Group:   parts[1],
		MsgType: parts[2],
		Edge:    parts[3],
	}
	if len(parts) >= 5 {
		t.Device = parts[4]
	}
	return t, nil
}

// IsBirth reports whether t is an NBIRTH or DBIRTH message, the message
// types that carry alias bindings.
func (t Topic) IsBirth() bool {
	return t.MsgType == "NBIRTH" || t.MsgType == "DBIRTH"
}

// RebirthTopic builds the outbound command topic for this edge node.
func RebirthTopic(group, edge string) string {
	return "spBv1.0/" + group + "/" + edge + "/command/rebirth"
}
