package providers

// SystemPrompt frames every opinion source as an equity analyst.
const SystemPrompt = "You are an expert equity analyst. You answer only with the requested JSON object."

// PickInstruction is the fixed request sent to every opinion source.
const PickInstruction = `Select the 10 US-listed stocks you believe have the best risk-adjusted upside over the next 1 to 3 months.

Respond with ONE JSON object and nothing else, shaped exactly like this:
{
  "picks": [
    {
      "symbol": "TICKER",
      "entry_price": 123.45,
      "target_price": 150.00,
      "stop_loss": 110.00,
      "confidence_score": 80,
      "reasoning": "Two or three sentences on why.",
      "timeframe": "3 months",
      "is_top_pick": true,
      "rank": 1,
      "sector": "Technology",
      "catalyst": "Upcoming earnings"
    }
  ]
}

Rules:
- rank runs from 1 (strongest) to 10 with no repeats.
- is_top_pick is true for ranks 1 to 5 only.
- confidence_score is an integer from 0 to 100.
- prices are plain numbers in USD, without currency symbols.`
