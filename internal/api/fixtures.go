package api

// Placeholder content for pages that have no backing data yet.

type call struct {
	Date     string `json:"date"`
	Number   string `json:"number"`
	Duration string `json:"duration"`
	Cost     string `json:"cost"`
}

var callHistory = []call{
	{Date: "15.10.2023 14:23", Number: "+375 (29) 123-45-67", Duration: "5:12", Cost: "0.00"},
	{Date: "15.10.2023 12:15", Number: "+375 (33) 987-65-43", Duration: "2:45", Cost: "0.00"},
	{Date: "14.10.2023 18:30", Number: "+375 (25) 456-78-90", Duration: "10:22", Cost: "0.00"},
	{Date: "14.10.2023 09:15", Number: "+375 (17) 555-35-35", Duration: "3:18", Cost: "0.00"},
}

type notification struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Date    string `json:"date"`
	Read    bool   `json:"read"`
}

var notificationFeed = []notification{
	{
		ID:      1,
		Type:    "info",
		Title:   "Tariff update",
		Message: "New tariff plans are available from November 1",
		Date:    "2023-10-20",
	},
	{
		ID:      2,
		Type:    "warning",
		Title:   "Internet package running low",
		Message: "0.5 GB of 5 GB left",
		Date:    "2023-10-18",
		Read:    true,
	},
}

// service is a catalog entry. Active is the default for subscribers who
// never toggled it.
type service struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	Price       string `json:"price"`
}

var serviceCatalog = []service{
	{Name: "Internet", Description: "5 GB of high-speed internet", Active: true, Price: "included"},
	{Name: "Calls", Description: "200 minutes to all national numbers", Active: true, Price: "included"},
	{Name: "Messages", Description: "50 SMS per month", Active: true, Price: "included"},
	{Name: "Antivirus", Description: "Device threat protection", Price: "5.99/month"},
	{Name: "Mobile TV", Description: "Access to TV channels", Price: "9.99/month"},
}

func knownService(name string) bool {
	for _, s := range serviceCatalog {
		if s.Name == name {
			return true
		}
	}
	return false
}

type quota struct {
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

var (
	internetQuota = quota{Used: 2.1, Total: 5}
	callsQuota    = quota{Used: 127, Total: 200}
	smsQuota      = quota{Used: 23, Total: 50}
)
