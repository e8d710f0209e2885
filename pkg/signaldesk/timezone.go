package signaldesk

import "time"

const marketTimeZoneName = "America/New_York"

var marketLocation = loadMarketLocation()

func loadMarketLocation() *time.Location {
	location, err := time.LoadLocation(marketTimeZoneName)
	if err != nil {
		return time.FixedZone(marketTimeZoneName, -5*60*60)
	}
	return location
}

// MarketLocation returns the US equity market time zone.
func MarketLocation() *time.Location {
	return marketLocation
}

// NowInMarket returns current time in the US equity market time zone.
func NowInMarket() time.Time {
	return time.Now().In(marketLocation)
}

// NowRFC3339InMarket returns the current RFC3339 timestamp in market time.
func NowRFC3339InMarket() string {
	return NowInMarket().Format(time.RFC3339)
}

// marketDay formats t as a YYYY-MM-DD trading day in market time.
func marketDay(t time.Time) string {
	return t.In(marketLocation).Format("2006-01-02")
}
