package domain

// Listing is one marketplace entry as returned by the "last listings" endpoint.
// Optional attributes are pointers so an absent value stays distinguishable from zero.
type Listing struct {
	ID           int32   `json:"id"`
	TType        string  `json:"tType"`
	UID          string  `json:"uid"`
	Tag1         *string `json:"tag1"`
	Tag2         *string `json:"tag2"`
	Tag3         *string `json:"tag3"`
	GoldQty      int32   `json:"goldQty"`
	GemsQty      int32   `json:"gemsQty"`
	Created      *string `json:"created"`
	Tier         *int32  `json:"tier"`
	Order        *int32  `json:"order"`
	CityID       *int32  `json:"cityId"`
	GoldPrice    *int32  `json:"goldPrice"`
	GemsPrice    *int32  `json:"gemsPrice"`
	RequestCycle int32   `json:"requestCycleLast"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

// Snapshot is the upstream response envelope. Listings is nil when the
// payload carried no data container at all, and empty when it carried an
// empty list.
type Snapshot struct {
	Listings []Listing `json:"data"`
}
