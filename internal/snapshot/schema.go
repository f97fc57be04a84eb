package snapshot

import "github.com/santhosh-tekuri/jsonschema/v5"

// schemaJSON is the minimum shape a previous artifact needs to be trusted for backfill.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["prices"],
  "properties": {
    "asOfUtc": {"type": "string"},
    "window": {"type": ["string", "null"]},
    "countTickers": {"type": "integer", "minimum": 0},
    "missing": {"type": ["array", "null"], "items": {"type": "string"}},
    "prices": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "price": {"type": ["number", "string", "null"]},
          "currency": {"type": ["string", "null"]},
          "marketDate": {"type": ["string", "null"]},
          "fetchedAtUtc": {"type": ["string", "null"]},
          "source": {"type": "string"},
          "stale": {"type": "boolean"}
        }
      }
    }
  }
}`

var artifactSchema = jsonschema.MustCompileString("prices_latest.schema.json", schemaJSON)
