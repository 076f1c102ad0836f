package main

import (
	"dwmblocks/internal/app"
	"dwmblocks/internal/block"
)

// Edit this list and rebuild to change the bar.
var blocks = app.Blocks{
	BasePath:  "./scripts/",
	Separator: "",

	// prefix, suffix, interval (seconds), script name
	Defs: []block.Def{
		{Prefix: "", Suffix: " ", Interval: 10, Command: "wifi"},
		{Prefix: "| ", Suffix: " ", Interval: 5, Command: "cpu"},
		{Prefix: "| [ ", Suffix: " ] ", Interval: 20, Command: "battery"},
		{Prefix: "| ", Suffix: " ", Interval: 10, Command: "mem"},
		{Prefix: "| ", Suffix: " ", Interval: 60, Command: "hdd"},
		{Prefix: "| ", Suffix: "", Interval: 30, Command: "date"},
	},
}
