package nmea

import (
	"strconv"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

// WaypointSentence is the OIWPL sentence for waypoint number n.
func WaypointSentence(p core.GeoPoint, n int) string {
	lat, ns := FormatLat(p.Lat, 4)
	lon, ew := FormatLon(p.Lon, 4)
	return Build(TypeWaypoint, lat, ns, lon, ew, strconv.Itoa(n))
}

// ThrottleSentence is the PSEAR mission throttle sentence.
func ThrottleSentence(percent int) string {
	return Build(TypeThrottle, "0", "000", strconv.Itoa(percent), "0", "000")
}

// MissionUpload renders the full download a client sends to load a mission:
// the throttle, the download header, the ERP as waypoint 0, every waypoint,
// the download trailer and the switch to waypoint mode.
func MissionUpload(erp core.GeoPoint, waypoints []core.Waypoint, throttle int) []string {
	lines := make([]string, 0, len(waypoints)+5)
	lines = append(lines, ThrottleSentence(throttle))
	lines = append(lines, Build(TypeCommand, "F", strconv.Itoa(len(waypoints)+2)))
	lines = append(lines, WaypointSentence(erp, 0))
	for i, wp := range waypoints {
		lines = append(lines, WaypointSentence(wp.Position, i+1))
	}
	lines = append(lines, Build(TypeCommand, "F", "0"))
	lines = append(lines, Build(TypeCommand, "W"))
	return lines
}
