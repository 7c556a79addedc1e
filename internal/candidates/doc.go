// Package candidates ingests observed short-form videos and applies the
// statistical gate.
//
// Sources produce Items: JSONSource reads scraper dataset exports and
// FeedSource reads RSS or Atom feeds (YouTube channel feeds include view
// counts). Importer upserts each item through the store, which derives the
// score, and queues passing candidates for analysis.
package candidates
