// Command gradebot runs the notebook grading Telegram bot.
package main

import (
	"github.com/m3rciful/gradebot/bot"
	"github.com/m3rciful/gradebot/core/cmd"
)

func main() {
	cmd.Execute(bot.CLI())
}
