package matching

import (
	"fmt"
	"strings"
)

// JoinWithAnd renders a list for display: "a", "a and b", "a, b and c".
func JoinWithAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

// FlightDescription renders a same-flight match as "<flight> on <date>",
// using the other traveler's leg and its departure date in UTC.
func FlightDescription(m SameFlightMatch) string {
	return fmt.Sprintf("%s on %s",
		NormalizeFlightNumber(m.OtherLeg.FlightNumber),
		m.OtherLeg.DepartureTime.UTC().Format("02 Jan 2006"))
}

// LayoverDescription renders a layover match as "<airport> (<n> min overlap)".
func LayoverDescription(m LayoverMatch) string {
	return fmt.Sprintf("%s (%d min overlap)", m.ArrivalAirport, m.OverlapMinutes)
}

// BuildFlightText is the same-flight summary line, or "" when descs is empty.
func BuildFlightText(descs []string) string {
	if len(descs) == 0 {
		return ""
	}
	return "Flying with you on " + JoinWithAnd(descs)
}

// BuildLayoverText is the layover summary line, or "" when descs is empty.
// The verb agrees with the number of layovers.
func BuildLayoverText(descs []string) string {
	switch len(descs) {
	case 0:
		return ""
	case 1:
		return "Has a layover with you at " + descs[0]
	}
	return "Has layovers with you at " + JoinWithAnd(descs)
}

// Summary renders both lines for an aggregated entry. Either may be "".
func Summary(u UnifiedMatch) (flights, layovers string) {
	fd := make([]string, 0, len(u.SameFlights))
	for _, m := range u.SameFlights {
		fd = append(fd, FlightDescription(m))
	}
	ld := make([]string, 0, len(u.Layovers))
	for _, m := range u.Layovers {
		ld = append(ld, LayoverDescription(m))
	}
	return BuildFlightText(fd), BuildLayoverText(ld)
}
