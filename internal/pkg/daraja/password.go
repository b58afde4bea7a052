package daraja

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

// gatewayZone is East Africa Time. Daraja rejects timestamps outside a small window of its local clock.
var gatewayZone = loadGatewayZone()

func loadGatewayZone() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}

// Timestamp formats t as YYYYMMDDHHMMSS in East Africa Time.
func Timestamp(t time.Time) string {
	return t.In(gatewayZone).Format(timestampLayout)
}

// Password is base64(shortCode + passKey + timestamp).
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}
