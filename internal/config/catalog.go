/**
 * @description
 * Static service catalog. Each entry describes a purchasable engagement type
 * with its unit point cost and minimum order quantity. The catalog is indexed
 * by service id for lookup at order time; the supplier's live service list is
 * only used as a display fallback and never for pricing.
 */

package config

// Service is one catalog entry.
type Service struct {
	ID     int
	Name   string
	Points int64 // point cost per unit
	Min    int   // minimum order quantity
}

// Services is the full catalog in display order.
var Services = []Service{
	{ID: 3036, Name: "Tiktok Followers (Average Quality)", Points: 2, Min: 12},
	{ID: 3048, Name: "Tiktok Likes (Average Quality)", Points: 2, Min: 12},
	{ID: 3047, Name: "Tiktok Views (Average Quality)", Points: 1, Min: 12},
	{ID: 3051, Name: "Video Saves", Points: 3, Min: 112},
	{ID: 3054, Name: "Video Shares", Points: 3, Min: 112},
	{ID: 3102, Name: "Tiktok Live Likes High Quality", Points: 3, Min: 5},
	{ID: 3103, Name: "Tiktok Livestream Viewers (30 Mins WatchTime)", Points: 5000, Min: 50},
	{ID: 3106, Name: "Instagram Followers (Average Quality)", Points: 300, Min: 20},
	{ID: 2997, Name: "Instagram Likes (Average Quality)", Points: 250, Min: 20},
	{ID: 3108, Name: "Instagram Video/Reel Views (Average Quality)", Points: 2, Min: 20},
	{ID: 3017, Name: "Instagram Story Views (High Quality)", Points: 300, Min: 112},
	{ID: 3123, Name: "Facebook Page Followers (Average Quality)", Points: 0, Min: 0},
	{ID: 3125, Name: "Facebook Profile Followers (Average Quality)", Points: 50, Min: 112},
	{ID: 3129, Name: "Facebook Post Likes (Average Quality)", Points: 60, Min: 12},
	{ID: 3131, Name: "Facebook Post Reaction (Love❤️)", Points: 60, Min: 10},
	{ID: 3133, Name: "Facebook Post Reaction (Haha😂)", Points: 60, Min: 10},
	{ID: 3132, Name: "Facebook Post Reaction (Wow😲)", Points: 60, Min: 10},
	{ID: 3134, Name: "Facebook Post Reaction (Sad😥)", Points: 60, Min: 10},
	{ID: 3135, Name: "Facebook Post Reaction (Angry😡)", Points: 60, Min: 10},
	{ID: 2932, Name: "Facebook Group Members (Average Quality)", Points: 80, Min: 100},
	{ID: 3137, Name: "Facebook Video/Reel Views (Average Quality)", Points: 20, Min: 100},
	{ID: 3143, Name: "Telegram Members (Average Quality)", Points: 1000, Min: 500},
	{ID: 2801, Name: "Telegram Views (High quality)", Points: 20, Min: 10},
	{ID: 2804, Name: "Telegram Auto Views (New & Old Posts)", Points: 10, Min: 20},
	{ID: 2733, Name: "Telegram - Positive reactions (👍 ❤️ 🔥 🎉)", Points: 40, Min: 10},
	{ID: 2734, Name: "Telegram - Negative reactions (👎 😢 🤯 😱 🤬 🤮 💩 🤔)", Points: 40, Min: 10},
	{ID: 3146, Name: "Twitter Likes (Average Quality)", Points: 100, Min: 20},
	{ID: 3080, Name: "YouTube Likes (Average Quality)", Points: 40, Min: 25},
	{ID: 2891, Name: "Whatsapp Channel Emoji Reactions (👍❤️😂😲😥🙏)", Points: 5000, Min: 20},
}

var servicesByID = func() map[int]Service {
	m := make(map[int]Service, len(Services))
	for _, s := range Services {
		m[s.ID] = s
	}
	return m
}()

// ServiceByID looks up a catalog entry by service id.
func ServiceByID(id int) (Service, bool) {
	s, ok := servicesByID[id]
	return s, ok
}
