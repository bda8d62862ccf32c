// Package parallel はCPUバウンドな処理をコア数に応じた範囲に分割して
// 実行するヘルパーを提供します。One-vs-Restのクラス単位の学習のように、
// 各範囲が互いに素な状態だけを触る処理を前提とします。
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize はitems個の処理を[start, end)の連続した範囲に分割し、
// fnを範囲ごとに並列実行してすべての完了を待つ。
// 範囲は重ならないため、fnが範囲外の共有状態に触れない限り同期は不要。
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	workers := runtime.NumCPU()
	if workers > items {
		workers = items
	}

	// 切り上げ除算で各ワーカーの担当数を決める
	chunk := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunk {
		end := start + chunk
		if end > items {
			end = items
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ParallelizeWithThreshold はitemsがthresholdを超える場合のみ並列化する。
// クラス数が少ないときはgoroutine起動のコストが分割の利益を上回るため、
// しきい値以下では逐次実行する。
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}

	Parallelize(items, fn)
}
