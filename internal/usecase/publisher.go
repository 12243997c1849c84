package usecase

// 在庫変更イベントの発行口。live.Hubが実装する。
// originSessionIDは発信者のライブセッション。イベントは発信者にも届き、
// クライアント側がoriginで読み飛ばす。
type StockPublisher interface {
	PublishStockChanged(branch, product string, itemID, newStock int64, originSessionID string)
}
