// Package notify delivers rendered reports.
//
// TelegramNotifier posts to a chat through the Bot API, WriterNotifier writes
// to any io.Writer (stdout, a log file). Watchlist condenses a report into the
// short alert that follows every scheduled delivery, and CommandPoller answers
// the bot's /start and /id commands over getUpdates long polling.
package notify
