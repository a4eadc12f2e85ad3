package models

// Info describes the lightning node where API payments terminate.
type Info struct {
	ID                    string    `json:"id"`
	Alias                 string    `json:"alias"`
	Color                 string    `json:"color"`
	PeersCount            int64     `json:"num_peers"`
	PendingChannelsCount  int64     `json:"num_pending_channels"`
	ActiveChannelsCount   int64     `json:"num_active_channels"`
	InactiveChannelsCount int64     `json:"num_inactive_channels"`
	Address               []Address `json:"address"`
	Binding               []Address `json:"binding"`
	Version               string    `json:"version"`
	Blockheight           int64     `json:"blockheight"`
	Network               string    `json:"network"`
	MsatoshiFeesCollected int64     `json:"msatoshi_fees_collected"`
	FeesCollectedMsat     string    `json:"fees_collected_msat"`
}

type Address struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Port    int64  `json:"port"`
}
