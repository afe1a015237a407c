package scraper_test

import (
	"fmt"

	"ttscraper/pkg/models"
	"ttscraper/pkg/scraper"
)

func ExampleFinalize() {
	posts := []models.Post{
		{ID: "1", PostedAt: 1700000000},
		{ID: "2", PostedAt: 1700000500},
		{ID: "1", PostedAt: 1700009999},
	}

	for _, p := range scraper.Finalize(posts, 10) {
		fmt.Println(p.ID, p.PostedAt)
	}
	// Output:
	// 2 1700000500
	// 1 1700000000
}
